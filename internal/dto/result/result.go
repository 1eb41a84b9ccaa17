package result

// Result 统一的接口返回结构
type Result struct {
	Success  bool        `json:"success"`
	ErrorMsg string      `json:"errorMsg,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Total    *int64      `json:"total,omitempty"`
}

// Ok 返回无数据的成功结果
func Ok() Result {
	return Result{Success: true}
}

// OkWithData 返回携带数据的成功结果
func OkWithData(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail 返回失败结果
func Fail(msg string) Result {
	return Result{Success: false, ErrorMsg: msg}
}

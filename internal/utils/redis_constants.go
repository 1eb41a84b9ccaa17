package utils

const (
	LOGIN_CODE_KEY = "login:code:"
	LOGIN_CODE_TTL = 2
	LOGIN_USER_KEY = "login:token:"
	LOGIN_USER_TTL = 36000

	SECKILL_STOCK_KEY = "seckill:stock:"
	SECKILL_ORDER_KEY = "seckill:order:"
	SECKILL_BEGIN_KEY = "seckill:begin:"
	SECKILL_END_KEY   = "seckill:end:"

	LOCK_ORDER_KEY = "lock:order:"
	LOCK_ORDER_TTL = 10

	CACHE_SHOP_VOUCHER_KEY = "cache:voucher:shop:"
	CACHE_SHOP_VOUCHER_TTL = 30

	USER_NICK_NAME_PREFIX = "user_"
)

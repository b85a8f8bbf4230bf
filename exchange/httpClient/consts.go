package httpClient

const (
	API_BASE_URL = "https://api.bybit.com"

	PLACE_ORDER_ENDPOINT      = "/v5/order/create"
	CANCEL_ALL_ENDPOINT       = "/v5/order/cancel-all"
	OPEN_ORDERS_ENDPOINT      = "/v5/order/realtime"
	INSTRUMENTS_INFO_ENDPOINT = "/v5/market/instruments-info"

	RECV_WINDOW = "5000"
	SIGN_TYPE   = "2"
)

// signed request headers, fixed by the venue
const (
	HEADER_API_KEY     = "X-BAPI-API-KEY"
	HEADER_SIGN        = "X-BAPI-SIGN"
	HEADER_SIGN_TYPE   = "X-BAPI-SIGN-TYPE"
	HEADER_TIMESTAMP   = "X-BAPI-TIMESTAMP"
	HEADER_RECV_WINDOW = "X-BAPI-RECV-WINDOW"
)

const (
	CATEGORY_LINEAR = "linear"

	SIDE_BUY  = "Buy"
	SIDE_SELL = "Sell"

	ORDER_TYPE_LIMIT = "Limit"
	TIF_GTC          = "GTC"

	// one-way position mode
	POSITION_IDX_ONE_WAY = 0
)

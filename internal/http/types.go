package http

type apiResponse struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type healthRes struct {
	Status  string `json:"status"`
	ChainID string `json:"chainId"`
	Network string `json:"network"`
	Market  string `json:"marketplace"`
}

// Prices are display decimals in ether; they are converted to wei here.
type listReq struct {
	Price string `json:"price" binding:"required"`
}

type transferReq struct {
	To string `json:"to" binding:"required"`
}

type auctionReq struct {
	StartPrice      string `json:"startPrice"      binding:"required"`
	DurationSeconds int64  `json:"durationSeconds" binding:"required"`
}

type bidReq struct {
	Amount string `json:"amount" binding:"required"`
}

// eventMessage is one frame on the /events stream.
type eventMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

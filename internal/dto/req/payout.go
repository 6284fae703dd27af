package req

type CreatePayoutReq struct {
	Amount   string            `json:"amount" binding:"required"`
	Currency string            `json:"currency" binding:"required,len=3"`
	Metadata map[string]string `json:"metadata"`
}

type ListPayoutsReq struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit"`
}

package handler

type SubmitRequest struct {
	RequestType string  `json:"request_type" validate:"required,oneof=account data"`
	Reason      *string `json:"reason" validate:"omitempty,max=2000"`
}

type ReviewRequest struct {
	Decision   string  `json:"decision" validate:"required,oneof=approved rejected"`
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=2000"`
}

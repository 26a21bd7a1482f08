package models

// AlertRequest is the request body for generating an alert.
type AlertRequest struct {
	City          string `json:"city" validate:"required,max=100"`
	WindowMinutes *int   `json:"windowMinutes,omitempty" validate:"omitempty,gte=0,lte=1440"`
	StepMinutes   *int   `json:"stepMinutes,omitempty" validate:"omitempty,gte=1,lte=360"`
	ForceImage    bool   `json:"forceImage,omitempty"`
}

// Alert is the result of an alert request.
type Alert struct {
	ID         string    `json:"id"`
	City       string    `json:"city"`
	Location   Point     `json:"location"`
	Detected   bool      `json:"detected"`
	Condition  Condition `json:"condition"`
	ETAMinutes int       `json:"etaMinutes"`
	Source     *string   `json:"source,omitempty"`
	Message    string    `json:"message"`
	Prompt     string    `json:"prompt,omitempty"`
	ImageURL   *string   `json:"imageUrl,omitempty"`
	CreatedAt  Timestamp `json:"createdAt"`
}

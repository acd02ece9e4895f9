package models

import "time"

// NPSSurvey is one survey round sent on behalf of a trainer.
type NPSSurvey struct {
	BaseModel

	TrainerID string        `gorm:"size:36;index;not null" json:"trainer_id"`
	SentAt    time.Time     `gorm:"index;not null" json:"sent_at"`
	Responses []NPSResponse `gorm:"foreignKey:SurveyID" json:"responses,omitempty"`
}

func (NPSSurvey) TableName() string { return "nps_surveys" }

// NPSResponse is a client's slot in a survey round; Score stays nil until
// the client answers.
type NPSResponse struct {
	BaseModel

	SurveyID    string     `gorm:"size:36;index;not null" json:"survey_id"`
	ClientID    string     `gorm:"size:36;index;not null" json:"client_id"`
	Score       *int       `json:"score,omitempty"`
	Feedback    string     `gorm:"type:text" json:"feedback,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func (NPSResponse) TableName() string { return "nps_responses" }

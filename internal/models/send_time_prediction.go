package models

// SendTimePrediction is the predicted best notification hour for one user on
// one weekday (0 = Sunday).
type SendTimePrediction struct {
	BaseModel

	UserID        string  `gorm:"size:36;not null;uniqueIndex:idx_send_time_user_dow,priority:1" json:"user_id"`
	DayOfWeek     int     `gorm:"not null;uniqueIndex:idx_send_time_user_dow,priority:2" json:"day_of_week"`
	PredictedHour int     `gorm:"not null" json:"predicted_hour"`
	SampleSize    int     `gorm:"not null" json:"sample_size"`
	Confidence    float64 `gorm:"not null" json:"confidence"`
}

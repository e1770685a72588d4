package jobs

const TaskSendSMS = "sms:send"

// SendSMSPayload is one recipient of a broadcast. One task per
// recipient so a single bad number never blocks the rest.
type SendSMSPayload struct {
	BroadcastID string `json:"broadcast_id"`
	Phone       string `json:"phone"`
	Message     string `json:"message"`
}

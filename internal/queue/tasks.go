package queue

const (
	TypeOTPEmail   = "otp:email"
	TypePurgeSweep = "tenant:purge_sweep"
)

type OTPEmailPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	OTP   string `json:"otp"`
}

type PurgeSweepPayload struct{}

package command

const (
	processAndSendSubject = "report.cmd.process_and_send"
	processSubject        = "report.cmd.process"
	sendSubject           = "report.cmd.send"
	captureNowSubject     = "report.cmd.capture_now"
	testEmailSubject      = "report.cmd.test_email"
	getScheduleSubject    = "report.cmd.get_schedule"
	statusSubject         = "report.cmd.status"
)

const (
	statusCompleted = "completed"
	statusError     = "error"
)

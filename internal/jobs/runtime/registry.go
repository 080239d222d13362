package runtime

// Handler executes one claimed job to a terminal state. A non-nil return
// means "this attempt failed for infrastructure reasons, redeliver me";
// domain failures terminate the job inside Run via Fail/Cancelled instead.
type Handler interface {
	Run(ctx *Context) error
}

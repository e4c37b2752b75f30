package response

const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeNotFound        = 404
	CodeTimeout         = 408
	CodeConflict        = 409
	CodePayloadTooLarge = 413
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeUnavailable     = 503
)

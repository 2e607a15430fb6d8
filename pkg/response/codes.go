package response

// Error codes carried by `error` frames and JSON error bodies.
const (
	CodeInvalidFrame    = "INVALID_FRAME"
	CodeUnknownType     = "UNKNOWN_TYPE"
	CodeInvalidIdentity = "INVALID_IDENTITY"
	CodeInvalidRoom     = "INVALID_ROOM"
	CodeRoomRequired    = "ROOM_REQUIRED"
	CodeNotJoined       = "NOT_JOINED"
	CodeInvalidMessage  = "INVALID_MESSAGE"
	CodePersistFailed   = "PERSIST_FAILED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInvalidLimit    = "INVALID_LIMIT"
)

// message
var msg = map[string]string{
	CodeInvalidFrame:    "frame is not valid JSON",
	CodeUnknownType:     "unknown frame type",
	CodeInvalidIdentity: "name is required and must not contain '_'",
	CodeInvalidRoom:     "room is malformed",
	CodeRoomRequired:    "no room given and none joined",
	CodeNotJoined:       "send a join frame first",
	CodeInvalidMessage:  "text must not be empty",
	CodePersistFailed:   "message could not be stored and was not delivered",
	CodeInternal:        "internal error",
	CodeRateLimited:     "too many requests",
	CodeInvalidLimit:    "limit must be a positive integer",
}

// Message returns the default human readable text for code.
func Message(code string) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return msg[CodeInternal]
}

// ErrorResponse is the JSON body of every HTTP error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error builds an ErrorResponse with the default text for code.
func Error(code string, details string) ErrorResponse {
	return ErrorResponse{Code: code, Message: Message(code), Details: details}
}

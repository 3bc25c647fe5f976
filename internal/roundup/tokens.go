package roundup

// Response tokens returned by the backend table endpoints. The token string is
// the whole response body on failure; an empty body means TokenSuccess.
const (
	TokenSuccess                   = "SUCCESS"
	TokenChannelURINull            = "ERR_CHANNEL_URI_NULL"
	TokenInvalidRequestMessageID   = "ERR_INVALID_REQUEST_MESSAGE_ID"
	TokenSessionNotFound           = "ERR_SESSION_NOT_FOUND"
	TokenSessionDead               = "ERR_SESSION_DEAD"
	TokenWrongInviterShortDeviceID = "ERR_WRONG_INVITER_SHORT_DEVICE_ID"
	TokenNotificationFailed        = "ERR_MPNS_NOTIFICATION_FAILED"
	TokenInsertFailed              = "ERR_INSERT_FAILED"
	TokenUpdateFailed              = "ERR_UPDATE_FAILED"
	TokenReadFailed                = "ERR_READ_FAILED"
	TokenGeneralFailure            = "ERR_GENERAL_FAILURE"
	TokenBadRequest                = "ERR_BAD_REQUEST"
	TokenUnauthorized              = "ERR_UNAUTHORIZED"
	TokenNotAllowed                = "ERR_NOT_ALLOWED"
	TokenNotificationLimit         = "ERR_NOTIFICATION_LIMIT_EXCEEDED"
	TokenTooManyInvitees           = "ERR_TOO_MANY_INVITEES"
)

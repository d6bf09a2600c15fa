package models

import "errors"

// Application-wide standard errors
var (
	// Common resource/DB errors
	ErrNotFound = errors.New("resource not found")

	// User & authentication errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user with this username already exists")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrConsentPending     = errors.New("parental consent has not been granted yet")
	ErrUnauthorized       = errors.New("unauthorized") // authentication required or failed
	ErrForbidden          = errors.New("forbidden")    // authenticated, but lacks permission

	// Token errors
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenNotFound  = errors.New("token not found in storage")

	// Story errors
	ErrStoryNotFound      = errors.New("story not found")
	ErrStoryNotDraft      = errors.New("story is not in draft state")
	ErrStoryNotInReview   = errors.New("story is not awaiting review")
	ErrStoryNotPublished  = errors.New("story is not published")
	ErrStoryEmpty         = errors.New("story has no content")
	ErrAlreadyLiked       = errors.New("story already liked by this user")
	ErrNotLikedYet        = errors.New("story not liked by this user yet")

	// Comment errors
	ErrCommentNotFound = errors.New("comment not found")

	// Subscription & quota errors
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrQuotaExceeded        = errors.New("usage quota exceeded for current plan")
	ErrUnknownTier          = errors.New("unknown subscription tier")

	// Notification errors
	ErrNotificationNotFound = errors.New("notification not found")

	// AI provider key errors
	ErrNoActiveAIKey = errors.New("no active AI provider key available")
	ErrAIKeyNotFound = errors.New("AI provider key not found")

	// AI generation errors
	ErrGenerationFailed     = errors.New("AI generation failed")
	ErrGenerationInProgress = errors.New("user already has an active generation task")

	// General request/server errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
	ErrInvalidCursor  = errors.New("invalid pagination cursor")
)

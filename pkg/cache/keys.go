package cache

import "strings"

// Key categories. Every cache key in the system is built through
// KeyManager so the namespace prefix and delimiter stay uniform.
const (
	CategoryAuthSession  = "auth_session"
	CategoryUserSessions = "user_sessions"
	CategoryOTP          = "otp"
	CategoryOTPAttempts  = "otp_attempts"
	CategoryChatSession  = "chat_session"
	CategoryLock         = "lock"
	CategoryTempData     = "temp_data"
	CategoryChatTx       = "chat_tx"
	CategoryRateLimit    = "rate_limit"
)

const keyDelimiter = ":"

// KeyManager builds namespaced cache keys of the form
// {namespace}:{category}:{parts...}.
type KeyManager struct {
	namespace string
}

// NewKeyManager creates a key manager for the given application
// namespace, e.g. "reportai".
func NewKeyManager(namespace string) *KeyManager {
	return &KeyManager{namespace: namespace}
}

// Key joins the category and parts under the namespace.
func (k *KeyManager) Key(category string, parts ...string) string {
	elems := make([]string, 0, len(parts)+2)
	elems = append(elems, k.namespace, category)
	elems = append(elems, parts...)
	return strings.Join(elems, keyDelimiter)
}

// Pattern builds a glob pattern for scanning keys in a category.
func (k *KeyManager) Pattern(category string, parts ...string) string {
	return k.Key(category, parts...) + keyDelimiter + "*"
}

// AuthSessionKey is the key for one auth session token.
func (k *KeyManager) AuthSessionKey(sessionID string) string {
	return k.Key(CategoryAuthSession, sessionID)
}

// UserSessionsKey is the key for the set of a user's session IDs.
func (k *KeyManager) UserSessionsKey(userID string) string {
	return k.Key(CategoryUserSessions, userID)
}

// OTPKey is the key for a pending one-time passcode.
func (k *KeyManager) OTPKey(email string) string {
	return k.Key(CategoryOTP, email)
}

// OTPAttemptsKey is the key for OTP verification attempt counts.
func (k *KeyManager) OTPAttemptsKey(email string) string {
	return k.Key(CategoryOTPAttempts, email)
}

// ChatSessionKey is the key for a session's cached conversation context.
func (k *KeyManager) ChatSessionKey(sessionID string) string {
	return k.Key(CategoryChatSession, sessionID)
}

// ChatLockKey is the key for a session-scoped chat lock.
func (k *KeyManager) ChatLockKey(sessionID string) string {
	return k.Key(CategoryLock, "chat", sessionID)
}

// ChatTxBackupKey is the key for a chat transaction's backup snapshot.
func (k *KeyManager) ChatTxBackupKey(sessionID, transactionID string) string {
	return k.Key(CategoryChatTx, sessionID, transactionID)
}

// TempDataKey is the key for a temporary data record in a label space,
// e.g. TempDataKey("extraction", "42_extraction_ab12cd").
func (k *KeyManager) TempDataKey(label, identifier string) string {
	return k.Key(CategoryTempData, label, identifier)
}

// TempDataPattern matches all temporary data keys under a label.
func (k *KeyManager) TempDataPattern(label string) string {
	return k.Key(CategoryTempData, label) + keyDelimiter + "*"
}

// RateLimitKey is the key for a rate limit counter bucket.
func (k *KeyManager) RateLimitKey(scope, identifier string) string {
	return k.Key(CategoryRateLimit, scope, identifier)
}

package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyManager_Key(t *testing.T) {
	km := NewKeyManager("reportai")

	assert.Equal(t, "reportai:auth_session:abc", km.AuthSessionKey("abc"))
	assert.Equal(t, "reportai:user_sessions:42", km.UserSessionsKey("42"))
	assert.Equal(t, "reportai:chat_session:s1", km.ChatSessionKey("s1"))
	assert.Equal(t, "reportai:lock:chat:s1", km.ChatLockKey("s1"))
	assert.Equal(t, "reportai:chat_tx:s1:tx1", km.ChatTxBackupKey("s1", "tx1"))
	assert.Equal(t, "reportai:temp_data:extraction:42_extraction_ff", km.TempDataKey("extraction", "42_extraction_ff"))
}

func TestKeyManager_Pattern(t *testing.T) {
	km := NewKeyManager("reportai")

	assert.Equal(t, "reportai:chat_session:*", km.Pattern(CategoryChatSession))
	assert.Equal(t, "reportai:temp_data:extraction:*", km.TempDataPattern("extraction"))
}

func TestKeyManager_NamespaceIsolation(t *testing.T) {
	a := NewKeyManager("app_a")
	b := NewKeyManager("app_b")

	assert.NotEqual(t, a.ChatSessionKey("s1"), b.ChatSessionKey("s1"))
}

func TestTempIdentifier(t *testing.T) {
	id := NewTempIdentifier(42, "extraction")

	owner, ok := TempIdentifierOwner(id)
	assert.True(t, ok)
	assert.Equal(t, "42", owner)

	other := NewTempIdentifier(42, "extraction")
	assert.NotEqual(t, id, other, "identifiers must be unique per call")

	_, ok = TempIdentifierOwner("noseparator")
	assert.False(t, ok)
}

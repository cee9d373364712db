package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCRUD(t *testing.T) {
	s := New()
	sess := s.CreateSession("debug pass")
	require.Len(t, s.ListSessions(), 1)

	_, err := s.UpdateSession(sess.ID, func(sess *Session) { sess.FlowIDs = append(sess.FlowIDs, "f1") })
	require.NoError(t, err)

	require.NoError(t, s.ArchiveSession(sess.ID, true))
	require.NoError(t, s.DeleteSession(sess.ID))
	assert.Empty(t, s.ListSessions())

	assert.ErrorIs(t, s.DeleteSession(sess.ID), ErrNotFound)
}

func TestQuickFilterCRUD(t *testing.T) {
	s := New()
	qf := s.SaveQuickFilter("errors", "~e")
	_, err := s.UpdateQuickFilter(qf.ID, "errors only", "~e")
	require.NoError(t, err)
	require.NoError(t, s.DeleteQuickFilter(qf.ID))
	assert.Empty(t, s.ListQuickFilters())
}

func TestNotificationConfigDefaults(t *testing.T) {
	s := New()
	assert.Equal(t, DefaultNotificationConfig, s.NotificationConfig())
	s.UpdateNotificationConfig(NotificationConfig{DesktopEnabled: true})
	assert.True(t, s.NotificationConfig().DesktopEnabled)
}

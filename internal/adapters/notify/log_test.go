package notify

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostleaks/internal/domain"
)

func TestDispatchLogsPerChannel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := NewLogDispatcher(logrus.NewEntry(logger))

	user := domain.User{ID: "u1", Alerts: domain.AlertSettings{Email: true, Telegram: true, TelegramUsername: "alice"}}
	findings := []domain.Finding{
		{Name: "Adobe", Source: "hibp", PwnCount: 200_000_000, DataClasses: []string{"Passwords"}, IsVerified: true},
		{Name: "Canva", Source: "hibp"},
	}
	require.NoError(t, d.DispatchNewBreaches(context.Background(), user, "alice@example.com", findings))

	require.Len(t, hook.AllEntries(), 2)
	var channels []string
	for _, e := range hook.AllEntries() {
		channels = append(channels, e.Data["channel"].(string))
		assert.Equal(t, "example.com", e.Data["email_domain"])
		assert.Equal(t, []string{"Adobe", "Canva"}, e.Data["new_breaches"])
		assert.NotContains(t, e.Message, "alice@")
	}
	assert.ElementsMatch(t, []string{"email", "telegram"}, channels)
}

func TestDispatchSkipsEmptyAndUnconfigured(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := NewLogDispatcher(logrus.NewEntry(logger))

	require.NoError(t, d.DispatchNewBreaches(context.Background(), domain.User{Alerts: domain.AlertSettings{Email: true}}, "a@example.com", nil))
	assert.Empty(t, hook.AllEntries())

	// Telegram without a username has nowhere to deliver.
	user := domain.User{Alerts: domain.AlertSettings{Telegram: true}}
	require.NoError(t, d.DispatchNewBreaches(context.Background(), user, "a@example.com", []domain.Finding{{Name: "Adobe"}}))
	assert.Empty(t, hook.AllEntries())
}

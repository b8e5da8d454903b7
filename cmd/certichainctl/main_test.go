package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/certichain/internal/model"
	"github.com/iliyamo/certichain/internal/repository"
)

type memAccounts struct {
	byEmail map[string]model.Account
	resets  map[uint64]string
}

func (m *memAccounts) Create(_ context.Context, name, email, password string, role model.Role, _ int) (uint64, error) {
	id := uint64(len(m.byEmail) + 1)
	m.byEmail[email] = model.Account{ID: id, Name: name, Email: email, PasswordHash: password, Role: role}
	return id, nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, id uint64, password string, _ int) error {
	m.resets[id] = password
	return nil
}

func TestProvision(t *testing.T) {
	accounts := &memAccounts{byEmail: map[string]model.Account{}, resets: map[uint64]string{}}
	var out bytes.Buffer

	require.NoError(t, provision(context.Background(), accounts, &out, "Galgotias University", "registrar@gu.test", "first-pass", 4))
	assert.Contains(t, out.String(), "created University account 1")
	assert.Equal(t, model.RoleUniversity, accounts.byEmail["registrar@gu.test"].Role)

	out.Reset()
	require.NoError(t, provision(context.Background(), accounts, &out, "Galgotias University", "registrar@gu.test", "second-pass", 4))
	assert.Contains(t, out.String(), "reset password of University account 1")
	assert.Equal(t, "second-pass", accounts.resets[1])
}

func TestProvisionRefusesOtherRoles(t *testing.T) {
	accounts := &memAccounts{
		byEmail: map[string]model.Account{"asha@example.com": {ID: 4, Role: model.RoleStudent}},
		resets:  map[uint64]string{},
	}
	err := provision(context.Background(), accounts, &bytes.Buffer{}, "GU", "asha@example.com", "password123", 4)
	require.Error(t, err)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Empty(t, accounts.resets)
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"migrate", "provision-university"}, names)
}

// Package credentials reads and rotates third-party API credentials kept in
// the provider_credentials table.
package credentials

import (
	"context"
	"errors"
	"strings"

	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

const ProviderRender = "render"

// Credential is the stored access data for one provider. Empty BaseURL or
// Model means the configured default applies.
type Credential struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Render returns the stored render credential; a zero Credential means none
// is set.
func (s *Store) Render(ctx context.Context) (Credential, error) {
	return s.Get(ctx, ProviderRender)
}

func (s *Store) Get(ctx context.Context, provider string) (Credential, error) {
	var c Credential
	err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderCredential, provider).Scan(&c.APIKey, &c.BaseURL, &c.Model)
	if err != nil {
		if infra.IsNoRows(err) {
			return Credential{}, nil
		}
		return Credential{}, err
	}
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Model = strings.TrimSpace(c.Model)
	return c, nil
}

// Rotate replaces the provider key. Blank BaseURL and Model keep the values
// already stored.
func (s *Store) Rotate(ctx context.Context, provider string, c Credential, actor string) error {
	key := strings.TrimSpace(c.APIKey)
	if key == "" {
		return errors.New("api key is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QRotateProviderCredential,
		provider, key, strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"), strings.TrimSpace(c.Model), strings.TrimSpace(actor))
	return err
}

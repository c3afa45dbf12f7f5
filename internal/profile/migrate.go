package profile

import (
	"errors"
	"fmt"

	"github.com/TheMichaelB/credvault/internal/secure"
	"github.com/TheMichaelB/credvault/internal/vault"
)

// MigratePlainText re-encrypts legacy plaintext passwords under key and
// saves the affected profiles. With no names every stored profile is
// checked. It returns the names that were migrated, in order.
func MigratePlainText(store Store, resolver *vault.Resolver, key *secure.Buffer, names ...string) ([]string, error) {
	if len(names) == 0 {
		all, err := store.List()
		if err != nil {
			return nil, err
		}
		names = all
	}

	var migrated []string
	for _, name := range names {
		p, err := store.Get(name)
		if err != nil {
			return migrated, fmt.Errorf("load profile %s: %w", name, err)
		}

		src, changed, err := resolver.Migrate(p.Password.Source, key, "")
		if err != nil {
			return migrated, fmt.Errorf("migrate profile %s: %w", name, err)
		}
		if !changed {
			continue
		}

		p.Password.Source = src
		if err := store.Save(p); err != nil {
			return migrated, fmt.Errorf("save profile %s: %w", name, err)
		}
		migrated = append(migrated, name)
	}

	return migrated, nil
}

// Transfer copies every profile from one store to another. Profiles still
// holding a plaintext password are skipped and reported in the returned error.
func Transfer(from, to Store) (int, error) {
	names, err := from.List()
	if err != nil {
		return 0, fmt.Errorf("list source profiles: %w", err)
	}

	var skipped []error
	copied := 0
	for _, name := range names {
		p, err := from.Get(name)
		if err != nil {
			return copied, fmt.Errorf("load profile %s: %w", name, err)
		}

		if err := to.Save(p); err != nil {
			if errors.Is(err, vault.ErrPlainTextWrite) {
				skipped = append(skipped, err)
				continue
			}
			return copied, fmt.Errorf("save profile %s: %w", name, err)
		}
		copied++
	}

	return copied, errors.Join(skipped...)
}

package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/keybase/dbus"
	"github.com/keybase/go-keychain/secretservice"
)

const (
	service    = "verify-backend"
	collection = secretservice.DefaultCollection

	// KeychainPrefix marks an argument whose value lives in the keychain,
	// e.g. DB_DSN=keychain:db-dsn.
	KeychainPrefix = "keychain:"
)

// SecretSource resolves a keychain element to its secret value.
type SecretSource interface {
	Secret(element string) (string, error)
}

// FillKeychainValues replaces every "keychain:<element>" string field of
// args, including fields of embedded structs, with the secret stored in the
// desktop keychain. The keychain is only opened if such a field exists.
func FillKeychainValues[T any](args *T) error {
	return FillValues(args, &secretService{})
}

// FillValues works like FillKeychainValues with an arbitrary source.
func FillValues[T any](args *T, source SecretSource) error {
	return fill(reflect.ValueOf(args).Elem(), source)
}

func fill(v reflect.Value, source SecretSource) error {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Struct && f.CanSet() {
			if err := fill(f, source); err != nil {
				return err
			}
			continue
		}
		if f.Kind() != reflect.String || !strings.HasPrefix(f.String(), KeychainPrefix) {
			continue
		}
		if !f.CanSet() {
			return fmt.Errorf("set value for field %s", v.Type().Field(i).Name)
		}
		element := strings.TrimPrefix(f.String(), KeychainPrefix)
		secret, err := source.Secret(element)
		if err != nil {
			return err
		}
		f.SetString(secret)
	}
	return nil
}

// secretService reads from the freedesktop Secret Service over D-Bus.
type secretService struct {
	svc     *secretservice.SecretService
	session *secretservice.Session
}

func (s *secretService) Secret(element string) (string, error) {
	if s.svc == nil {
		var err error
		s.svc, s.session, err = initSecretService()
		if err != nil {
			return "", fmt.Errorf("init secret service: %w", err)
		}
	}
	if s.session == nil {
		return "", fmt.Errorf("no session")
	}
	items, err := s.svc.SearchCollection(collection, secretservice.Attributes{
		"service": service,
		"element": element,
	})
	if err != nil {
		return "", fmt.Errorf("search keychain element: %w", err)
	}
	if len(items) < 1 {
		return "", fmt.Errorf("keychain element %s not found", element)
	}
	if len(items) > 1 {
		return "", fmt.Errorf("found more than one keychain elements for %s", element)
	}
	secretValue, err := s.svc.GetSecret(items[0], *s.session)
	if err != nil {
		return "", fmt.Errorf("get value from keychain: %w", err)
	}
	return string(secretValue), nil
}

func initSecretService() (*secretservice.SecretService, *secretservice.Session, error) {
	svc, err := secretservice.NewService()
	if err != nil {
		return nil, nil, fmt.Errorf("create keychain service: %w", err)
	}
	if err := svc.Unlock([]dbus.ObjectPath{collection}); err != nil {
		return nil, nil, fmt.Errorf("unlock keychain service: %w", err)
	}
	session, err := svc.OpenSession(secretservice.AuthenticationDHAES)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return svc, session, nil
}

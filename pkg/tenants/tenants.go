// Package tenants loads the edir directory file.
//
// The file lists the edirs the backend serves together with the CBE account
// their members pay into:
//
//	edirs:
//	  - slug: addis
//	    name: Addis Edir
//	    cbe_account_number: "1000123455678"
//	    account_holder_name: Addis Edir Association
package tenants

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/edirhub/verify-backend/pkg/models"
	"github.com/edirhub/verify-backend/pkg/verifier"
)

var log = logrus.StandardLogger().WithField("package", "tenants")

var accountNumberRe = regexp.MustCompile(`^\d{13}$`)

type Edir struct {
	Slug              string `yaml:"slug"`
	Name              string `yaml:"name"`
	CbeAccountNumber  string `yaml:"cbe_account_number"`
	AccountHolderName string `yaml:"account_holder_name"`
}

func (e Edir) Identity() verifier.ExpectedIdentity {
	return verifier.IdentityFromAccount(e.CbeAccountNumber, e.AccountHolderName)
}

func (e Edir) Model() *models.Edir {
	return &models.Edir{
		Slug:              e.Slug,
		Name:              e.Name,
		CbeAccountNumber:  e.CbeAccountNumber,
		AccountHolderName: e.AccountHolderName,
	}
}

type Directory struct {
	Edirs []Edir `yaml:"edirs"`
}

func Load(path string) (*Directory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read tenant file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("unable to parse tenant file: %w", err)
	}
	for i := range d.Edirs {
		e := &d.Edirs[i]
		e.Slug = strings.TrimSpace(e.Slug)
		e.CbeAccountNumber = strings.TrimSpace(e.CbeAccountNumber)
		e.AccountHolderName = strings.TrimSpace(e.AccountHolderName)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Directory) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, e := range d.Edirs {
		switch {
		case e.Slug == "":
			errs = append(errs, fmt.Errorf("edir #%d: slug is required", i+1))
		case !models.ValidSlug(e.Slug):
			errs = append(errs, fmt.Errorf("edir %q: slug must be lowercase letters, digits, '-' or '_'", e.Slug))
		case seen[e.Slug]:
			errs = append(errs, fmt.Errorf("edir %s: duplicate slug", e.Slug))
		}
		seen[e.Slug] = true
		if e.CbeAccountNumber != "" && !accountNumberRe.MatchString(e.CbeAccountNumber) {
			errs = append(errs, fmt.Errorf("edir %s: CBE account number must be 13 digits", e.Slug))
		}
	}
	return errors.Join(errs...)
}

func (d *Directory) Get(slug string) (Edir, bool) {
	for _, e := range d.Edirs {
		if e.Slug == slug {
			return e, true
		}
	}
	return Edir{}, false
}

// Upserter is the part of payments.Repository needed to seed edirs.
type Upserter interface {
	UpsertEdir(ctx context.Context, e *models.Edir) error
}

// Seed creates or updates every edir of the directory.
func (d *Directory) Seed(ctx context.Context, repo Upserter) error {
	for _, e := range d.Edirs {
		if err := repo.UpsertEdir(ctx, e.Model()); err != nil {
			return fmt.Errorf("unable to seed edir %s: %w", e.Slug, err)
		}
		log.Debugf("seeded edir %s", e.Slug)
	}
	log.Infof("seeded %d edirs", len(d.Edirs))
	return nil
}

package directory

import (
	"context"
	"errors"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/cache"
)

const (
	clinicsCacheKey    = "clinics"
	directionsCacheKey = "directions"
)

// Directory serves reference data and resolves providers for booking.
// Clinic and direction lists are read through the cache; filtered lists and
// single lookups always hit the repository.
type Directory struct {
	repo  Repository
	cache *cache.Cache
}

func NewDirectory(repo Repository, c *cache.Cache) *Directory {
	return &Directory{repo: repo, cache: c}
}

func (d *Directory) ListClinics(ctx context.Context) ([]Clinic, error) {
	return cache.GetOrLoad(ctx, d.cache, clinicsCacheKey, d.repo.ListClinics)
}

func (d *Directory) ListDirections(ctx context.Context) ([]Direction, error) {
	return cache.GetOrLoad(ctx, d.cache, directionsCacheKey, d.repo.ListDirections)
}

func (d *Directory) ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	return d.repo.ListDoctors(ctx, f)
}

func (d *Directory) ListServices(ctx context.Context, f ServiceFilter) ([]Service, error) {
	return d.repo.ListServices(ctx, f)
}

func (d *Directory) GetClinic(ctx context.Context, id int64) (*Clinic, error) {
	c, err := d.repo.GetClinic(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("clinic %d not found", id)
	}
	return c, err
}

func (d *Directory) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	doc, err := d.repo.GetDoctor(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("doctor %d not found", id)
	}
	return doc, err
}

func (d *Directory) GetService(ctx context.Context, id int64) (*Service, error) {
	svc, err := d.repo.GetService(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("service %d not found", id)
	}
	return svc, err
}

// InvalidateReferenceData drops the cached clinic and direction lists.
func (d *Directory) InvalidateReferenceData(ctx context.Context) error {
	return d.cache.Invalidate(ctx, clinicsCacheKey, directionsCacheKey)
}

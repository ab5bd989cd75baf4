package directory

import "context"

type Repository interface {
	ListClinics(ctx context.Context) ([]Clinic, error)
	ListDirections(ctx context.Context) ([]Direction, error)
	ListDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error)
	ListServices(ctx context.Context, f ServiceFilter) ([]Service, error)

	GetClinic(ctx context.Context, id int64) (*Clinic, error)
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
	GetService(ctx context.Context, id int64) (*Service, error)
}

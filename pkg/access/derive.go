package access

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
	"github.com/platinummonkey/ehrops/pkg/directory"
)

// adminRole is the stored user.role value that derives to LevelAdmin
const adminRole = "admin"

// Deriver computes the effective role level and project scope of a user from
// directory records rather than the raw stored role
type Deriver struct {
	dir directory.Directory
}

// NewDeriver creates a deriver over dir
func NewDeriver(dir directory.Directory) *Deriver {
	return &Deriver{dir: dir}
}

// Derive returns the view of userID. A staff record wins over the stored role,
// then an admin role, then consultant. Revoked users derive to guest.
func (d *Deriver) Derive(ctx context.Context, userID int64) (*UserView, error) {
	var (
		user  *directory.User
		staff *directory.HospitalStaff
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = d.dir.GetUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		s, err := d.dir.GetHospitalStaffByUser(gctx, userID)
		if apperrors.IsNotFound(err) {
			return nil
		}
		staff = s
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &UserView{UserID: userID, AssignedProjectIDs: []int64{}}

	if user.AccessStatus == directory.AccessStatusRevoked {
		view.Role = string(LevelGuest)
		view.Level = LevelGuest
		return view, nil
	}

	switch {
	case staff != nil:
		hospitalID := staff.HospitalID
		view.Role = string(LevelHospitalStaff)
		view.Level = LevelHospitalStaff
		view.IsLeadership = staff.IsLeadership
		view.HospitalID = &hospitalID
		if staff.IsLeadership {
			view.Level = LevelHospitalLeadership
		}
		ids, err := d.dir.ListHospitalProjectIDs(ctx, hospitalID)
		if err != nil {
			return nil, err
		}
		view.AssignedProjectIDs = ids

	case user.Role == adminRole:
		view.Role = adminRole
		view.Level = LevelAdmin
		view.AllProjects = true

	default:
		view.Role = string(LevelConsultant)
		view.Level = LevelConsultant
		ids, err := d.dir.ListConsultantProjectIDs(ctx, userID)
		if err != nil {
			return nil, err
		}
		view.AssignedProjectIDs = ids
	}

	return view, nil
}

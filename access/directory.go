package access

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

// Directory resolves principals, students and tenants into the Subject /
// Resource / Facts inputs the engine consumes. All methods are read-only.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory { return &Directory{db: db} }

func (d *Directory) Subject(principalID uint) (Subject, error) {
	var p models.Principal
	if err := d.db.First(&p, "id = ?", principalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Subject{}, peierr.NotFound("principal")
		}
		return Subject{}, peierr.Persistence("load principal", err)
	}
	var t models.Tenant
	if err := d.db.First(&t, "id = ?", p.TenantID).Error; err != nil {
		return Subject{}, peierr.Persistence("load principal tenant", err)
	}
	return Subject{Principal: p, TenantPath: t.Path}, nil
}

func (d *Directory) StudentResource(studentID uint) (Resource, error) {
	var s models.Student
	if err := d.db.First(&s, "id = ?", studentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Resource{}, peierr.NotFound("student")
		}
		return Resource{}, peierr.Persistence("load student", err)
	}
	var t models.Tenant
	if err := d.db.First(&t, "id = ?", s.TenantID).Error; err != nil {
		return Resource{}, peierr.Persistence("load student tenant", err)
	}
	return Resource{TenantID: t.ID, TenantPath: t.Path, StudentID: s.ID}, nil
}

func (d *Directory) Facts(principalID, studentID uint) (Facts, error) {
	var f Facts
	var n int64
	if err := d.db.Model(&models.StaffAssignment{}).
		Where("principal_id = ? AND student_id = ?", principalID, studentID).
		Count(&n).Error; err != nil {
		return f, peierr.Persistence("load staff assignment", err)
	}
	f.AssignedToStudent = n > 0

	if err := d.db.Model(&models.FamilyLink{}).
		Where("principal_id = ? AND student_id = ?", principalID, studentID).
		Count(&n).Error; err != nil {
		return f, peierr.Persistence("load family link", err)
	}
	f.FamilyOfStudent = n > 0
	return f, nil
}

// CreateTenant inserts a node and materializes its ancestor path. The path is
// written once; nodes do not move between parents.
func (d *Directory) CreateTenant(parentID *uint, kind, name string) (*models.Tenant, error) {
	t := models.Tenant{ParentID: parentID, Kind: kind, Name: name}

	err := d.db.Transaction(func(tx *gorm.DB) error {
		parentPath := "/"
		if parentID != nil {
			var parent models.Tenant
			if err := tx.First(&parent, "id = ?", *parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return peierr.NotFound("parent tenant")
				}
				return peierr.Persistence("load parent tenant", err)
			}
			parentPath = parent.Path
		}
		if err := tx.Create(&t).Error; err != nil {
			return peierr.Persistence("create tenant", err)
		}
		t.Path = fmt.Sprintf("%s%d/", parentPath, t.ID)
		if err := tx.Model(&t).Update("path", t.Path).Error; err != nil {
			return peierr.Persistence("set tenant path", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

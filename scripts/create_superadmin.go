package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/config"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/database"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
)

// Bootstrap helper: creates the root network tenant and an active superadmin.
// Usage: SUPERADMIN_EMAIL=... SUPERADMIN_PASSWORD=... go run ./scripts
func main() {
	cfg := config.Load()
	db := database.Connect(cfg)

	email := os.Getenv("SUPERADMIN_EMAIL")
	pass := os.Getenv("SUPERADMIN_PASSWORD")
	if email == "" || pass == "" {
		log.Fatal("SUPERADMIN_EMAIL and SUPERADMIN_PASSWORD are required")
	}

	var existing models.Principal
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		log.Fatalf("principal %s already exists (id=%d)", email, existing.ID)
	}

	dir := access.NewDirectory(db)
	root, err := dir.CreateTenant(nil, models.TenantNetwork, "Rede Municipal")
	if err != nil {
		log.Fatalf("create root tenant: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	p := models.Principal{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Super Admin",
		TenantID:     root.ID,
		Role:         models.RoleSuperAdmin,
		Status:       models.PrincipalActive,
	}
	if err := db.Create(&p).Error; err != nil {
		log.Fatalf("create superadmin: %v", err)
	}
	fmt.Printf("superadmin created: id=%d tenant=%d\n", p.ID, root.ID)
}

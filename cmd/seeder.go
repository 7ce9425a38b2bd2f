package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := gorm.Open(gormpostgres.Open(cfg.Database.Source), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{"attendance_records", "device_change_requests", "employees", "settings"} {
				if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		seedEmployee(db, "rina@mail.com", "Rina", "employee", string(hash))
		seedEmployee(db, "admin@mail.com", "Dewi Admin", "admin", string(hash))

		var exists int
		row := db.Raw("SELECT 1 FROM settings WHERE key = ?", "company_allowed_ips").Row()
		if err := row.Scan(&exists); err != nil {
			if err := db.Exec("INSERT INTO settings (key, value, updated_at) VALUES (?, ?, now())",
				"company_allowed_ips", `[]`).Error; err != nil {
				log.Fatalf("failed to insert default company allowlist: %v", err)
			}
			fmt.Println("Seeded empty company allowlist")
		}

		fmt.Println("Seeding complete")
	},
}

func seedEmployee(db *gorm.DB, email, name, role, hash string) {
	var exists int
	row := db.Raw("SELECT 1 FROM employees WHERE email = ?", email).Row()
	if err := row.Scan(&exists); err == nil {
		fmt.Printf("employee %s already exists\n", email)
		return
	}

	if err := db.Exec(
		"INSERT INTO employees (email, name, role, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now())",
		email, name, role, hash).Error; err != nil {
		log.Fatalf("failed to insert employee %s: %v", email, err)
	}
	fmt.Printf("Seeded %s employee: %s\n", role, email)
}

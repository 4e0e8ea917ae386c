package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"workplacemapping/internal/config"
	"workplacemapping/internal/database"
	"workplacemapping/internal/domain"
	"workplacemapping/internal/logging"
	"workplacemapping/internal/repository"
	"workplacemapping/internal/util"
)

var log = logging.For("create_admin")

func main() {
	username := flag.String("username", os.Getenv("ADMIN_USERNAME"), "moderator username")
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "moderator email address")
	fullName := flag.String("name", "", "display name")
	staffOnly := flag.Bool("staff", false, "create a staff account instead of an admin")
	flag.Parse()

	password := os.Getenv("ADMIN_PASSWORD")
	if *username == "" || *email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "usage: ADMIN_PASSWORD=... create_admin -username NAME -email ADDRESS [-name FULL_NAME] [-staff]")
		os.Exit(2)
	}
	if !util.IsEmailAddress(*email) {
		log.Fatalf("Invalid email address: %s", *email)
	}
	if len(password) < 12 {
		log.Fatal("ADMIN_PASSWORD must be at least 12 characters")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(database.GetDB())

	if _, err := users.FindByUsername(ctx, *username); err == nil {
		fmt.Printf("User %q already exists!\n", *username)
		return
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		log.Fatalf("Failed to look up user: %v", err)
	}

	hashedPassword, err := util.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &domain.User{
		Username:       *username,
		Email:          *email,
		HashedPassword: hashedPassword,
		IsActive:       true,
		IsAdmin:        !*staffOnly,
		IsStaff:        true,
	}
	if *fullName != "" {
		user.FullName = fullName
	}

	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	role := "admin"
	if *staffOnly {
		role = "staff"
	}
	fmt.Printf("Created %s user %q (id %d)\n", role, user.Username, user.ID)
}

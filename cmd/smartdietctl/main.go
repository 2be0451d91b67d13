// Command smartdietctl runs operator tasks against the SmartDiet database:
// creating admins, verifying doctors, seeding accounts and generating
// document vault keys.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/smartdiet/smartdiet/internal/document"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
)

const usage = `usage: smartdietctl <command> [flags]

commands:
  create-admin    create an admin account
  verify-doctor   mark a doctor as verified
  seed            create accounts from a YAML or JSONC file
  gen-age-key     print a new document vault identity and recipient
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(strings.TrimSpace(usage))
	}

	switch args[0] {
	case "create-admin":
		return createAdmin(args[1:], out)
	case "verify-doctor":
		return verifyDoctor(args[1:], out)
	case "seed":
		return seed(args[1:], out)
	case "gen-age-key":
		return genAgeKey(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	dbURL := fs.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	return fs, dbURL
}

func openRepo(ctx context.Context, databaseURL string) (*repository.Repository, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	repo, err := repository.New(ctx, databaseURL, repository.WithMaxConns(2), repository.WithMinConns(0))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return repo, nil
}

func createAdmin(args []string, out io.Writer) error {
	fs, dbURL := newFlagSet("create-admin")
	email := fs.String("email", "", "Admin email")
	name := fs.String("name", "Administrator", "Display name")
	password := fs.String("password", os.Getenv("SMARTDIET_ADMIN_PASSWORD"), "Password (or SMARTDIET_ADMIN_PASSWORD)")
	format := fs.String("format", "plain", "Output format: plain or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := seedUser{
		Role:     model.RoleAdmin,
		Email:    *email,
		Password: *password,
		Name:     *name,
	}.toUser(time.Now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := openRepo(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return printUser(out, *format, user)
}

func verifyDoctor(args []string, out io.Writer) error {
	fs, dbURL := newFlagSet("verify-doctor")
	id := fs.String("id", "", "Doctor user ID")
	medicalID := fs.String("medical-id", "", "Doctor medical ID")
	note := fs.String("note", "verified by operator", "Verification note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" && *medicalID == "" {
		return errors.New("one of --id or --medical-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := openRepo(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	var doctor *model.User
	if *id != "" {
		doctor, err = repo.GetUserByID(ctx, *id)
	} else {
		doctor, err = repo.GetDoctorByMedicalID(ctx, strings.ToUpper(strings.TrimSpace(*medicalID)))
	}
	if err != nil {
		return fmt.Errorf("find doctor: %w", err)
	}
	if doctor.Role != model.RoleDoctor {
		return fmt.Errorf("user %s is a %s, not a doctor", doctor.ID, doctor.Role)
	}

	from := []model.VerificationStatus{
		model.VerificationUnverified,
		model.VerificationPending,
		model.VerificationRejected,
	}
	if err := repo.UpdateVerificationStatus(ctx, doctor.ID, from, model.VerificationVerified, *note); err != nil {
		return fmt.Errorf("verify doctor: %w", err)
	}
	fmt.Fprintf(out, "verified %s (%s)\n", doctor.Name, doctor.ID)
	return nil
}

func seed(args []string, out io.Writer) error {
	fs, dbURL := newFlagSet("seed")
	file := fs.StringP("file", "f", "", "Seed file (.yaml, .yml, .json or .jsonc)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}

	data, err := loadSeedFile(*file)
	if err != nil {
		return err
	}
	createdAt := time.Now().UTC()
	users := make([]*model.User, 0, len(data.Users))
	for i, su := range data.Users {
		user, err := su.toUser(createdAt)
		if err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		users = append(users, user)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := openRepo(ctx, *dbURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	var created, skipped int
	for _, user := range users {
		err := repo.CreateUser(ctx, user)
		switch {
		case errors.Is(err, repository.ErrEmailExists), errors.Is(err, repository.ErrMedicalIDExists):
			skipped++
			fmt.Fprintf(out, "skip   %-8s %s (exists)\n", user.Role, user.Email)
		case err != nil:
			return fmt.Errorf("create %s: %w", user.Email, err)
		default:
			created++
			fmt.Fprintf(out, "create %-8s %s\n", user.Role, user.Email)
		}
	}
	fmt.Fprintf(out, "%d created, %d skipped\n", created, skipped)
	return nil
}

func genAgeKey(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gen-age-key", pflag.ContinueOnError)
	env := fs.Bool("env", false, "Print as environment variable assignments")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, recipient, err := document.GenerateIdentity()
	if err != nil {
		return err
	}
	if *env {
		fmt.Fprintf(out, "DOCUMENT_AGE_IDENTITY=%s\nDOCUMENT_AGE_RECIPIENT=%s\n", identity, recipient)
		return nil
	}
	fmt.Fprintf(out, "# recipient: %s\n%s\n", recipient, identity)
	return nil
}

type userOutput struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

func printUser(out io.Writer, format string, user *model.User) error {
	switch strings.ToLower(format) {
	case "plain":
		fmt.Fprintln(out, user.ID)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(userOutput{ID: user.ID, Email: user.Email, Role: user.Role})
	default:
		return errors.New("invalid format; use plain or json")
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"ulift/internal/client"
	"ulift/internal/models"
	"ulift/internal/pipeline"
	"ulift/internal/validation"
)

var regForm models.RegistrationForm

var (
	cnhPath string
	raPath  string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Send a rider registration to the users API",
	RunE: func(cmd *cobra.Command, args []string) error {
		form := regForm
		var err error
		if form.CNH, err = readUpload(models.FieldCNH, cnhPath, cfg.Upload.MaxBytes); err != nil {
			return err
		}
		if form.RA, err = readUpload(models.FieldRA, raPath, cfg.Upload.MaxBytes); err != nil {
			return err
		}

		view := &terminalView{out: cmd.OutOrStdout()}
		p := pipeline.New(pipeline.Options{
			Users: client.NewUsersClient(client.UsersClientConfig{
				BaseURL: cfg.API.BaseURL,
				Timeout: cfg.GetAPITimeout(),
				Logger:  logger,
			}),
			View:      view,
			Navigator: &terminalNav{out: cmd.OutOrStdout()},
			Logger:    logger,
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetAPITimeout())
		defer cancel()
		res, err := p.Submit(ctx, &form)
		if err != nil {
			return err
		}
		if res.State != pipeline.Success {
			return fmt.Errorf("registration not accepted (%s)", res.State)
		}
		return nil
	},
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&regForm.Name, "name", "", "full name")
	f.StringVar(&regForm.Phone, "phone", "", "phone number, digits only")
	f.StringVar(&regForm.Campus, "campus", "", "campus id, one of "+fmt.Sprint(models.CampusValues()))
	f.StringVar(&regForm.Email, "email", "", "email address")
	f.StringVar(&regForm.CPF, "cpf", "", "CPF")
	f.StringVar(&regForm.Password, "password", "", "password, letters and digits")
	f.StringVar(&regForm.PasswordConfirm, "password-confirm", "", "password again")
	f.StringVar(&cnhPath, "cnh", "", "driver's license photo (optional)")
	f.StringVar(&raPath, "ra", "", "student id photo")
}

// readUpload loads a photo from disk; an empty path is an absent upload.
func readUpload(field, path string, limit int64) (*models.Upload, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	return models.NewUpload(field, filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), f, limit)
}

// terminalView prints what a browser would show next to the fields.
type terminalView struct {
	out io.Writer
}

func (v *terminalView) SetFieldErrors(errs validation.FieldErrors) {
	names := make([]string, 0, len(errs))
	for k := range errs {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return fieldRank(names[i]) < fieldRank(names[j]) })
	for _, k := range names {
		fmt.Fprintf(v.out, "  %-16s %s\n", k+":", errs[k])
	}
}

func (v *terminalView) Fill(form *models.RegistrationForm) {}

func (v *terminalView) ClearFieldErrors() {}

func (v *terminalView) ClearValues(fields ...string) {}

func (v *terminalView) ShowBanner(msg string) { fmt.Fprintln(v.out, "!!", msg) }

func (v *terminalView) HideBanner() {}

func fieldRank(name string) int {
	for i, f := range models.FieldOrder {
		if f == name {
			return i
		}
	}
	return len(models.FieldOrder)
}

type terminalNav struct {
	out io.Writer
}

func (n *terminalNav) NavigateToLogin() {
	fmt.Fprintln(n.out, "Registration sent. Next step: log in once your documents are approved.")
}

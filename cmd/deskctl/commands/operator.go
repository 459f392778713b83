package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-desk/internal/app"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
)

var (
	operatorEmail    string
	operatorName     string
	operatorPassword string
	operatorAdmin    bool
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operator accounts",
}

var operatorCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator account",
	Args:  cobra.NoArgs,
	RunE:  runOperatorCreate,
}

func init() {
	operatorCreateCmd.Flags().StringVar(&operatorEmail, "email", "", "Login email (required)")
	operatorCreateCmd.Flags().StringVar(&operatorName, "name", "", "Display name")
	operatorCreateCmd.Flags().StringVar(&operatorPassword, "password", "", "Password, at least 8 characters (required)")
	operatorCreateCmd.Flags().BoolVar(&operatorAdmin, "admin", false, "Grant the ADMIN role")
	_ = operatorCreateCmd.MarkFlagRequired("email")
	_ = operatorCreateCmd.MarkFlagRequired("password")

	operatorCmd.AddCommand(operatorCreateCmd)
}

func runOperatorCreate(cmd *cobra.Command, args []string) error {
	role := domain.OperatorRoleAgent
	if operatorAdmin {
		role = domain.OperatorRoleAdmin
	}

	return withApp(cmd.Context(), func(desk *app.App) error {
		op, err := desk.Auth.CreateOperator(cmd.Context(), service.NewOperatorInput{
			Email:       operatorEmail,
			DisplayName: operatorName,
			Password:    operatorPassword,
			Role:        role,
		})
		if err != nil {
			return err
		}
		fmt.Printf("operator %s created (%s, %s)\n", op.Email, op.Role, op.ID)
		return nil
	})
}

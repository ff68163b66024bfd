package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"starminder/internal/secrets"
)

var (
	addUserName  string
	addUserEmail string
	addUserToken string
)

// adduserCmd represents the adduser command
var adduserCmd = &cobra.Command{
	Use:   "adduser <username>",
	Short: "Create a user with a profile and optional GitHub token",
	Args:  cobra.ExactArgs(1),
	Run:   runAddUser,
}

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a token encryption key for the config file",
	Run: func(cmd *cobra.Command, args []string) {
		key, err := secrets.GenerateKey()
		if err != nil {
			log.Fatalf("Failed to generate key: %v", err)
		}
		fmt.Println(key)
	},
}

func init() {
	rootCmd.AddCommand(adduserCmd)
	rootCmd.AddCommand(keygenCmd)

	adduserCmd.Flags().StringVar(&addUserName, "name", "", "display name")
	adduserCmd.Flags().StringVar(&addUserEmail, "email", "", "account email")
	adduserCmd.Flags().StringVar(&addUserToken, "github-token", "", "GitHub bearer token to store (sealed)")
}

func runAddUser(cmd *cobra.Command, args []string) {
	a, err := bootstrap()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	username := args[0]
	user, err := a.db.CreateUser(username, addUserName, addUserEmail)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	if addUserToken != "" {
		if _, err := a.db.CreateProviderToken(user.ID, "github", addUserToken); err != nil {
			log.Fatalf("Failed to store token: %v", err)
		}
	}

	profile, err := a.db.GetProfileForUser(user.ID)
	if err != nil {
		log.Fatalf("Failed to load profile: %v", err)
	}

	fmt.Printf("✅ Created user %s\n", user.ID)
	fmt.Printf("   Feed: %s/feeds/%s\n", a.cfg.Server.BaseURL, profile.FeedID)
}

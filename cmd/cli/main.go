package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/yourorg/taskhub/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "users":
		handleUsers(args)
	case "tasks":
		handleTasks(args)
	case "migrate":
		runMigrations()
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: taskhub auth <login|logout|who>")
		return
	}

	switch args[0] {
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", args[0])
	}
}

func handleUsers(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: taskhub users <list|invite|role>")
		return
	}

	switch args[0] {
	case "list":
		listUsers()
	case "invite":
		inviteUser(args[1:])
	case "role":
		changeRole(args[1:])
	default:
		fmt.Printf("unknown users command: %s\n", args[0])
	}
}

func handleTasks(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: taskhub tasks <list|sweep|sweep-status>")
		return
	}

	switch args[0] {
	case "list":
		listTasks()
	case "sweep":
		runSweep()
	case "sweep-status":
		sweepStatus()
	default:
		fmt.Printf("unknown tasks command: %s\n", args[0])
	}
}

// Auth commands
func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("✗ Login failed: %v\n", result)
		return
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "taskhub_session" {
			saveSession(cookie.Value)
			fmt.Printf("✓ Logged in as: %s\n", *email)
			return
		}
	}
	fmt.Println("✗ Login succeeded but no session cookie was set")
}

func logoutUser() {
	if sid := loadSession(); sid != "" {
		req, _ := http.NewRequest("POST", getAPIURL()+"/auth/logout", nil)
		addSessionCookie(req)
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	os.Remove(sessionFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/auth/me", nil)
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		fmt.Println("Not logged in")
		return
	}

	var profile map[string]any
	json.NewDecoder(resp.Body).Decode(&profile)
	fmt.Printf("✓ %v <%v> role=%v business=%v\n", profile["name"], profile["email"], profile["role"], profile["businessId"])
}

// Directory commands
func listUsers() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/users", nil)
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		printAPIError(resp)
		return
	}

	var users []map[string]any
	json.NewDecoder(resp.Body).Decode(&users)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	for _, u := range users {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", u["id"], u["name"], u["email"], u["role"])
	}
	w.Flush()
}

func inviteUser(args []string) {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	email := fs.String("email", "", "invitee email")
	name := fs.String("name", "", "invitee name")
	role := fs.String("role", "staff", "invitee role (admin or staff)")

	fs.Parse(args)

	if *email == "" {
		fmt.Println("Error: email is required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "name": *name, "role": *role}
	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", getAPIURL()+"/users/invite", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		printAPIError(resp)
		return
	}
	fmt.Printf("✓ Invited: %s\n", *email)
}

func changeRole(args []string) {
	fs := flag.NewFlagSet("role", flag.ExitOnError)
	userID := fs.String("user", "", "target user ID")
	role := fs.String("role", "", "new role (admin or staff)")

	fs.Parse(args)

	if *userID == "" || *role == "" {
		fmt.Println("Error: user and role are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"role": *role}
	data, _ := json.Marshal(payload)
	req, _ := http.NewRequest("PATCH", getAPIURL()+"/users/"+*userID+"/role", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		printAPIError(resp)
		return
	}
	fmt.Printf("✓ Role changed: %s -> %s\n", *userID, *role)
}

// Task commands
func listTasks() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/tasks", nil)
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		printAPIError(resp)
		return
	}

	var tasks []map[string]any
	json.NewDecoder(resp.Body).Decode(&tasks)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tFREQUENCY")
	for _, t := range tasks {
		fmt.Fprintf(w, "%v\t%v\t%v\n", t["id"], t["title"], t["frequency"])
	}
	w.Flush()
}

func runSweep() {
	req, _ := http.NewRequest("POST", getAPIURL()+"/tasks/check-overdue", nil)
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		printAPIError(resp)
		return
	}

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	fmt.Printf("✓ Sweep complete, updated: %v\n", result["updated"])
}

func sweepStatus() {
	req, _ := http.NewRequest("GET", getAPIURL()+"/tasks/check-overdue/status", nil)
	addSessionCookie(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var status map[string]any
	json.NewDecoder(resp.Body).Decode(&status)
	fmt.Printf("state=%v last_flagged=%v last_run=%v\n", status["state"], status["last_flagged"], status["last_run_at"])
}

// Migrations run directly against the database, no server required
func runMigrations() {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		fmt.Println("Error: DATABASE_URL is required")
		os.Exit(1)
	}
	if err := database.RunMigrations(url); err != nil {
		fmt.Printf("✗ Migrations failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Migrations applied")
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("TASKHUB_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func sessionFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.taskhub/session"
}

func saveSession(id string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.taskhub", 0700)
	return os.WriteFile(sessionFile(), []byte(id), 0600)
}

func loadSession() string {
	data, _ := os.ReadFile(sessionFile())
	return string(data)
}

func addSessionCookie(req *http.Request) {
	if sid := loadSession(); sid != "" {
		req.AddCookie(&http.Cookie{Name: "taskhub_session", Value: sid})
	}
}

func printAPIError(resp *http.Response) {
	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	fmt.Printf("✗ Request failed (%d): %v\n", resp.StatusCode, result)
}

func printUsage() {
	fmt.Print(`TaskHub CLI

Usage:
  taskhub <command> [options]

Commands:
  auth     Session management (login, logout, who)
  users    Directory operations (list, invite, role) - admin access required
  tasks    Task operations (list, sweep, sweep-status)
  migrate  Apply database migrations (requires DATABASE_URL)
  help     Show this help message

Environment Variables:
  TASKHUB_API     API endpoint (default: http://localhost:8080/api)
  DATABASE_URL    PostgreSQL URL for migrate

Examples:
  taskhub auth login -email admin@example.com -password pass
  taskhub users list
  taskhub users invite -email new@example.com -name "New User" -role staff
  taskhub users role -user <id> -role admin
  taskhub tasks sweep
`)
}

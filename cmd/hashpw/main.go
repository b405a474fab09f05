// Command hashpw prints a bcrypt hash for KRAYOT_ADMIN_PASSWORD_HASH, or
// checks a password against an existing hash with -check.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	check := flag.String("check", "", "existing hash to verify the password against")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "no password given")
			os.Exit(2)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if *check != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(*check), []byte(password)); err != nil {
			fmt.Println("Hash does not match:", err)
			os.Exit(1)
		}
		fmt.Println("Hash matches")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash failed:", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const localConfig = `{
  browser: {
    mode: "remote",
    remote_url: "http://127.0.0.1:9222",
  },
}
`

func cmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fullCmd := name
	for _, a := range args {
		fullCmd += " "
		fullCmd += a
	}

	fmt.Printf("$ %s\n", fullCmd)
	return cmd.Run()
}

func createLocalStack() error {
	return cmd("docker", "compose", "-f", filepath.Join("dev", "local_stack", "compose.yaml"), "up", "-d")
}

func writeLocalConfig(recreate bool) error {
	_, err := os.Stat("config.local.json5")
	if err == nil && !recreate {
		slog.Info("config.local.json5 already exists, leaving it as is")
		return nil
	}
	return os.WriteFile("config.local.json5", []byte(localConfig), 0644)
}

func create(recreate bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	err = createLocalStack()
	if err != nil {
		return err
	}
	err = writeLocalConfig(recreate)
	if err != nil {
		return err
	}

	fmt.Println("remote browser: http://127.0.0.1:9222")
	fmt.Println("config overrides: config.local.json5")
	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "overwrite config.local.json5 if it exists")
	flag.Parse()

	err := create(*recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}

	slog.Info("dev environment created sucessfully!")
}

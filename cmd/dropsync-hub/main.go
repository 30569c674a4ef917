/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/carverauto/dropsync/cmd/dropsync-hub/app"
	"github.com/carverauto/dropsync/pkg/auth"
	"github.com/carverauto/dropsync/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/dropsync/hub.json", "Path to hub config file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	hashKey := flag.Bool("hash-admin-key", false, "Read an admin API key from stdin and print its bcrypt hash")
	flag.Parse()

	switch {
	case *showVersion:
		fmt.Println(version.GetFullVersion())

		return nil
	case *hashKey:
		return printAdminKeyHash()
	}

	return app.Run(context.Background(), app.Options{ConfigPath: *configPath})
}

func printAdminKeyHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read admin key: %w", err)
	}

	hash, err := auth.HashAdminKey(strings.TrimSpace(line))
	if err != nil {
		return err
	}

	fmt.Println(hash)

	return nil
}

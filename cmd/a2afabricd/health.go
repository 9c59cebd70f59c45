// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/pkg/registry"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the registry backend and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx := context.Background()
		store, err := registry.NewStoreFromConfig(ctx, cfg.Registry)
		if err != nil {
			return fmt.Errorf("build registry store: %w", err)
		}
		defer store.Close()

		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("registry ping failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

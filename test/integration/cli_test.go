// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearth Contributors

//go:build integration

package integration

import (
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// hearth runs the CLI from source against the suite database.
func hearth(args ...string) string {
	cmd := exec.CommandContext(env.ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../cmd/hearth"
	cmd.Env = append(cmd.Environ(), "DATABASE_URL="+env.connStr, "HEARTH_LOG_LEVEL=error")

	output, err := cmd.CombinedOutput()
	Expect(err).NotTo(HaveOccurred(), "hearth %v failed: %s", args, string(output))
	return string(output)
}

var _ = Describe("hearth CLI", func() {
	BeforeEach(func() {
		truncateAll()
	})

	It("reports the schema as fully migrated", func() {
		out := hearth("migrate", "status")
		Expect(out).To(ContainSubstring("Version: 3 (login_attempts)"))
		Expect(out).To(ContainSubstring("Pending: none"))
	})

	It("prunes expired sessions", func() {
		register("jane@example.com", nil)
		_, err := env.pool.Exec(env.ctx, `UPDATE sessions SET expires_at = now() - interval '1 hour'`)
		Expect(err).NotTo(HaveOccurred())

		out := hearth("prune")
		Expect(out).To(ContainSubstring("Pruned 2 expired sessions"))
	})
})

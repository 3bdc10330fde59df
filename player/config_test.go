package player_test

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stateforward/go-hfsm/player"
)

var _ = Describe("Config", func() {
	It("keeps defaults for omitted keys", func() {
		config, err := player.ParseConfig([]byte("walk_speed: 4\ncrouch_duration: 250ms\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(config.WalkSpeed).To(Equal(4.0))
		Expect(config.CrouchDuration).To(Equal(250 * time.Millisecond))
		Expect(config.SprintSpeed).To(Equal(player.DefaultConfig.SprintSpeed))
		Expect(config.CrouchEasing).To(Equal(player.DefaultConfig.CrouchEasing))
	})

	It("reports every invalid field", func() {
		_, err := player.ParseConfig([]byte("walk_speed: -1\ncrouch_height: 3\ncrouch_easing: wobble\n"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("walk_speed"))
		Expect(err.Error()).To(ContainSubstring("crouch_height"))
	})

	It("reports invalid fields in declaration order", func() {
		config := player.DefaultConfig
		config.WalkSpeed, config.SprintSpeed, config.AirborneSpeed, config.CrouchSpeed = -1, -1, -1, -1
		config.CrouchHeight = 3
		first := config.Validate()
		Expect(first).To(HaveOccurred())
		for range 10 {
			Expect(config.Validate().Error()).To(Equal(first.Error()))
		}
		message := first.Error()
		order := []string{"walk_speed", "sprint_speed", "airborne_speed", "crouch_speed", "crouch_height"}
		for i := 1; i < len(order); i++ {
			Expect(strings.Index(message, order[i-1])).To(BeNumerically("<", strings.Index(message, order[i])))
		}
	})

	It("rejects malformed YAML", func() {
		_, err := player.ParseConfig([]byte("walk_speed: [fast"))
		Expect(err).To(MatchError(ContainSubstring("parsing player config")))
	})

	It("loads from a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "player.yaml")
		Expect(os.WriteFile(path, []byte("sprint_speed: 9\n"), 0o600)).To(Succeed())
		config, err := player.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.SprintSpeed).To(Equal(9.0))

		_, err = player.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("refuses to build a context from an invalid config", func() {
		config := player.DefaultConfig
		config.Step = 0
		_, err := player.NewContext(config, nil)
		Expect(err).To(HaveOccurred())
	})
})

package player_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/stateforward/go-hfsm/clock"
	"github.com/stateforward/go-hfsm/player"
)

const dt = 1.0 / 60

var _ = Describe("Player", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		virtual *clock.Virtual
		driver  *player.Driver
		config  player.Config
	)

	settle := func() {
		Expect(driver.Machine.Wait(ctx)).To(Succeed())
	}

	frame := func() player.Snapshot {
		snapshot := driver.Frame(dt)
		settle()
		return snapshot
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		virtual = clock.NewVirtual(time.Unix(0, 0))
		config = player.DefaultConfig
		machine, err := player.New(config, virtual)
		Expect(err).NotTo(HaveOccurred())
		driver = player.NewDriver(machine, nil)
		driver.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("starts idle on the ground", func() {
		Expect(driver.Machine.State()).To(Equal(player.Idle))
		Expect(driver.Machine.CurrentStateLog()).To(Equal("idle -> grounded -> player"))
		Expect(driver.Context().Speed()).To(BeZero())
		Expect(driver.Context().CameraHeight()).To(Equal(config.StandingHeight))
	})

	Describe("crouching then leaving the ground", func() {
		It("crouches at half walk speed and exits through grounded", func() {
			driver.Context().ToggleCrouch()
			frame()

			Expect(driver.Machine.State()).To(Equal(player.Crouch))
			Expect(driver.Context().Speed()).To(Equal(config.WalkSpeed * 0.5))
			Expect(driver.Context().CameraHeight()).To(BeNumerically("~", config.CrouchHeight, 1e-9))
			Expect(virtual.Sleeps()).To(BeNumerically(">", 1))
			Expect(virtual.Now()).To(Equal(time.Unix(0, 0).Add(config.CrouchDuration)))

			driver.Context().SetGrounded(false)
			frame()

			Expect(driver.Machine.State()).To(Equal(player.Airborne))
			Expect(driver.Machine.CurrentStateLog()).To(Equal("airborne -> player"))
			Expect(driver.Context().Speed()).To(Equal(config.AirborneSpeed))
			Expect(driver.Context().CameraHeight()).To(BeNumerically("~", config.StandingHeight, 1e-9))
		})

		It("lands back into idle and crouches again while the toggle is on", func() {
			driver.Context().ToggleCrouch()
			frame()
			driver.Context().SetGrounded(false)
			frame()
			driver.Context().SetGrounded(true)
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Idle))
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Crouch))
		})
	})

	Describe("locomotion", func() {
		It("walks, runs and stops", func() {
			driver.Context().SetMove(r2.Vec{Y: 1})
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Walking))
			Expect(driver.Context().Speed()).To(Equal(config.WalkSpeed))

			driver.Context().SetSprint(true)
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Running))
			Expect(driver.Context().Speed()).To(Equal(config.SprintSpeed))

			driver.Context().SetSprint(false)
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Walking))

			driver.Context().SetMove(r2.Vec{})
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Idle))
			Expect(driver.Context().Speed()).To(BeZero())
		})

		It("ignores stick drift below the threshold", func() {
			driver.Context().SetMove(r2.Vec{X: 0.005})
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Idle))
		})

		It("moves the character by speed and input", func() {
			driver.Context().SetMove(r2.Vec{Y: 1})
			frame()
			before := driver.Snapshot()
			after := driver.Frame(1)
			Expect(after.Position[2] - before.Position[2]).To(BeNumerically("~", config.WalkSpeed, 1e-9))
			Expect(after.Position[0]).To(BeZero())
		})

		It("prefers crouch over movement", func() {
			driver.Context().SetMove(r2.Vec{Y: 1})
			driver.Context().ToggleCrouch()
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Crouch))
			driver.Context().ToggleCrouch()
			frame()
			Expect(driver.Machine.State()).To(Equal(player.Idle))
			Expect(driver.Context().Speed()).To(BeZero())
		})
	})

	Describe("driver", func() {
		It("reports state changes once", func() {
			first := driver.Frame(dt)
			second := driver.Frame(dt)
			Expect(first.Changed).To(BeTrue())
			Expect(second.Changed).To(BeFalse())
			Expect(second.Frame).To(Equal(2))
			Expect(second.Phase).To(Equal("idle"))
		})

		It("stamps snapshots with the player clock", func() {
			virtual.Advance(time.Second)
			Expect(driver.Frame(dt).At).To(Equal(time.Unix(0, 0).Add(time.Second)))
			Expect(driver.Snapshot().At).To(Equal(virtual.Now()))
		})
	})

	Describe("scripts", func() {
		It("replays a crouch and jump", func() {
			script, err := player.ParseScript([]byte(`
name: crouch-jump
steps:
  - crouch: true
    settle: true
  - grounded: false
    settle: true
  - frames: 3
`))
			Expect(err).NotTo(HaveOccurred())
			var seen []string
			err = player.Replay(ctx, driver, script, dt, nil, func(s player.Snapshot) {
				if s.Changed {
					seen = append(seen, s.States)
				}
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{
				"idle -> grounded -> player",
				"crouch -> grounded -> player",
				"airborne -> player",
			}))
		})

		It("rejects malformed steps", func() {
			_, err := player.ParseScript([]byte("steps:\n  - move: [1]\n"))
			Expect(err).To(MatchError(ContainSubstring("two components")))
			_, err = player.ParseScript([]byte("steps:\n  - frames: -1\n"))
			Expect(err).To(HaveOccurred())
		})

		It("stops when the context ends", func() {
			script, err := player.ParseScript([]byte("steps:\n  - frames: 10\n"))
			Expect(err).NotTo(HaveOccurred())
			cancel()
			Expect(player.Replay(ctx, driver, script, dt, nil, nil)).To(MatchError(context.Canceled))
		})
	})
})

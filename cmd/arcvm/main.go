package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arcvm/arcvm/internal/accel"
	"github.com/arcvm/arcvm/internal/config"
	"github.com/arcvm/arcvm/internal/devices"
	"github.com/arcvm/arcvm/internal/engine"
)

// uartBase is where the console UART sits on the MMIO bus.
const uartBase = 0x0900_0000

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "arcvm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "machine.yaml", "Machine description file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run a bare metal arm64 guest under the host's virtualization engine.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	machine, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if machine.Kernel == "" {
		return fmt.Errorf("config %s: no kernel image", *configPath)
	}

	eng, err := engine.Open()
	if err != nil {
		return fmt.Errorf("open virtualization engine: %w", err)
	}

	bus := devices.NewBus()
	if err := bus.Add(uartBase, devices.PL011Size, devices.NewPL011(os.Stdout)); err != nil {
		return err
	}

	a := accel.New(eng, accel.Config{
		Bus:         bus,
		VTimerIntID: machine.VTimerIntID,
	})
	defer a.Close()

	ram, err := accel.AllocateHostMemory(int(machine.MemorySize))
	if err != nil {
		return err
	}
	defer accel.FreeHostMemory(ram)

	image, err := os.ReadFile(machine.Kernel)
	if err != nil {
		return fmt.Errorf("read kernel: %w", err)
	}
	if uint64(len(image)) > machine.MemorySize {
		return fmt.Errorf("kernel image (%d bytes) does not fit in guest memory (%d bytes)",
			len(image), machine.MemorySize)
	}
	copy(ram, image)

	a.AddRegion(accel.RAMRegion{
		Guest: machine.MemoryBase,
		Size:  machine.MemorySize,
		Host:  accel.HostPointer(ram),
	})

	// Closed by a.Close.
	vcpu, err := a.NewVCPU()
	if err != nil {
		return fmt.Errorf("create vcpu: %w", err)
	}

	var boot accel.CPUState
	boot.PC = machine.MemoryBase
	boot.Pstate = 0x3c5 // EL1h, DAIF masked
	vcpu.ResetState(boot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting guest",
		"kernel", machine.Kernel,
		"memory_base", fmt.Sprintf("0x%x", machine.MemoryBase),
		"memory_size", machine.MemorySize)

	err = vcpu.Run(ctx)
	switch {
	case errors.Is(err, accel.ErrVMHalted):
		slog.Info("guest powered off")
		return nil
	case errors.Is(err, accel.ErrGuestRequestedReboot):
		slog.Info("guest requested a reboot")
		return nil
	case errors.Is(err, context.Canceled):
		slog.Info("interrupted")
		return nil
	default:
		return err
	}
}

// Copyright 2024 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// boota verifies the Android boot slot of a disk and boots it.
//
// Synopsis:
//
//	boota [--config FILE] [--image DISK] [--env ENVFILE] [OPTIONS]
//
// Every option may also come from the config file (YAML, TOML, JSON) or
// from a BOOTA_<OPTION> environment variable, dashes as underscores.
//
// Exit status: 0 when the executor accepted the images, 2 when
// verification failed, 3 when the key was rejected or a rollback was
// detected, 1 for any other failure.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/linuxboot/boota/pkg/avb"
	"github.com/linuxboot/boota/pkg/avbops"
	"github.com/linuxboot/boota/pkg/blockdev"
	"github.com/linuxboot/boota/pkg/boota"
	"github.com/linuxboot/boota/pkg/env"
	"github.com/linuxboot/boota/pkg/handoff"
	"github.com/linuxboot/boota/pkg/log"
)

// anchor is the trust anchor handed to the engine.
var anchor = avbops.DefaultTrustAnchor()

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("boota", flag.ContinueOnError)
	fs.String("config", "", "config file")
	fs.StringP("image", "i", "/dev/mmcblk0", "disk image or block device")
	fs.Uint32("sector-size", 512, "sector size of the disk")
	fs.StringP("env", "e", "", "U-Boot environment file, created when missing")
	fs.Int("env-size", env.DefaultSize, "size of a newly created environment")
	fs.StringP("slot", "s", boota.DefaultSlotSuffix, "slot suffix")
	fs.StringSlice("partitions", boota.DefaultPartitions, "partitions to verify, boot image first")
	fs.String("policy", "fixed", "device policy: fixed or stored")
	fs.String("hashtree-mode", avb.HashtreeErrorModeRestartAndInvalidate.String(), "dm-verity error mode")
	fs.String("executor", "dump", "executor: dump or kexec")
	fs.String("dump-dir", "boota-out", "output directory of the dump executor")
	fs.Bool("no-reboot", false, "kexec: load the kernel without rebooting")
	fs.Uint64("mem-size", 0, "bytes available for the decompressed kernel")
	fs.Bool("allow-unverified", false, "continue past trust failures (boota_insecure builds only)")
	fs.BoolP("verbose", "v", false, "debug output")
	return fs
}

func loadConfig(args []string) (*viper.Viper, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %q", fs.Args())
	}
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("BOOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func setupLogging(v *viper.Viper, w io.Writer) {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if v.GetBool("verbose") {
		l.SetLevel(logrus.DebugLevel)
	}
	log.DefaultLogger = log.NewLogrus(l)
}

func openEnv(v *viper.Viper) (*env.Env, string, error) {
	path := v.GetString("env")
	if path == "" {
		return env.New(v.GetInt("env-size")), "", nil
	}
	e, err := env.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("%s does not exist, starting with an empty environment", path)
		return env.New(v.GetInt("env-size")), path, nil
	}
	return e, path, err
}

func newPolicy(v *viper.Viper, e *env.Env) (avbops.Policy, error) {
	switch p := v.GetString("policy"); p {
	case "fixed":
		return avbops.FixedPolicy{}, nil
	case "stored":
		return avbops.StoredPolicy{Store: e}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", p)
	}
}

func newExecutor(v *viper.Viper) (handoff.Executor, error) {
	switch x := v.GetString("executor"); x {
	case "dump":
		return &handoff.Dump{Dir: v.GetString("dump-dir")}, nil
	case "kexec":
		return &handoff.Kexec{NoReboot: v.GetBool("no-reboot")}, nil
	default:
		return nil, fmt.Errorf("unknown executor %q", x)
	}
}

func boot(v *viper.Viper) error {
	e, envPath, err := openEnv(v)
	if err != nil {
		return err
	}
	policy, err := newPolicy(v, e)
	if err != nil {
		return err
	}
	exec, err := newExecutor(v)
	if err != nil {
		return err
	}
	mode, err := avb.ParseHashtreeErrorMode(v.GetString("hashtree-mode"))
	if err != nil {
		return err
	}

	if v.GetBool("allow-unverified") {
		if boota.InsecureBuild() {
			log.Warnf("INSECURE: trust failures other than a failed verification will be ignored")
		} else {
			log.Warnf("--allow-unverified has no effect, rebuild with -tags boota_insecure")
		}
	}

	img, err := blockdev.OpenFile(v.GetString("image"), uint32(v.GetUint("sector-size")))
	if err != nil {
		return err
	}
	defer img.Close()

	a := boota.New(avbops.New(img, anchor, policy), avb.NewVerifier(), e, exec, boota.Config{
		Partitions:      v.GetStringSlice("partitions"),
		SlotSuffix:      v.GetString("slot"),
		HashtreeMode:    mode,
		Memory:          handoff.Memory{Size: v.GetUint64("mem-size")},
		AllowUnverified: v.GetBool("allow-unverified"),
	})
	bootErr := a.Boot()
	if envPath != "" {
		if err := e.WriteFile(envPath); err != nil {
			log.Errorf("saving environment: %v", err)
			if bootErr == nil {
				return err
			}
		}
	}
	return bootErr
}

func run(args []string, stderr io.Writer) int {
	v, err := loadConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return boota.ExitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "boota: %v\n", err)
		return boota.ExitFailure
	}
	setupLogging(v, stderr)
	if err := boot(v); err != nil {
		log.Errorf("%v", err)
		return boota.ExitStatus(err)
	}
	return boota.ExitOK
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

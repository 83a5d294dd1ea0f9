package subagent

import "fmt"

// buildArgv constructs the codex argv in the fixed order the child expects:
// exec --json, then flag pairs for whatever is set in opts, then the
// prompt as the final positional. Grounded on the teacher's flag-assembly
// in agent/codex.go, but driven by EffectiveOptions fields rather than a
// free-form Args slice, since the spec fixes the flag order exactly.
func buildArgv(opts EffectiveOptions, prompt string) []string {
	args := make([]string, 0, 12)
	args = append(args, "exec", "--json")

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.ReasoningEffort != "" {
		args = append(args, "-c", fmt.Sprintf("model_reasoning_effort=%q", string(opts.ReasoningEffort)))
	}
	if opts.Sandbox != "" {
		args = append(args, "--sandbox", string(opts.Sandbox))
	}
	if opts.UseFullAuto {
		args = append(args, "--full-auto")
	}
	if opts.WorkingDirectory != "" {
		args = append(args, "-C", opts.WorkingDirectory)
	}
	args = append(args, "--skip-git-repo-check")
	args = append(args, prompt)
	return args
}

// resolveEffective applies the sandbox/fullAuto precedence rule from a raw
// SpawnRequest: caller-supplied sandbox wins, then the server's environment
// default, then "workspace-write" — except when fullAuto was requested and
// neither a caller sandbox nor an environment default exists, in which case
// sandbox is left unset and useFullAuto stays true. An explicit sandbox
// always suppresses useFullAuto.
func resolveEffective(req SpawnRequest, envDefaultSandbox Sandbox) EffectiveOptions {
	eff := EffectiveOptions{
		Model:            req.Model,
		ReasoningEffort:  req.ReasoningEffort,
		WorkingDirectory: req.WorkingDirectory,
	}

	switch {
	case req.Sandbox != "":
		eff.Sandbox = req.Sandbox
		eff.UseFullAuto = false
	case envDefaultSandbox != "":
		eff.Sandbox = envDefaultSandbox
		eff.UseFullAuto = false
	case req.FullAuto:
		eff.Sandbox = ""
		eff.UseFullAuto = true
	default:
		eff.Sandbox = SandboxWorkspaceWrite
		eff.UseFullAuto = false
	}
	return eff
}

// overlayOverrides applies interrupt-supplied overrides onto a captured
// EffectiveOptions, following the same explicit-sandbox-suppresses-fullAuto
// rule as resolveEffective.
func overlayOverrides(base EffectiveOptions, overrides *SpawnRequest) EffectiveOptions {
	if overrides == nil {
		return base
	}
	out := base
	if overrides.Model != "" {
		out.Model = overrides.Model
	}
	if overrides.ReasoningEffort != "" {
		out.ReasoningEffort = overrides.ReasoningEffort
	}
	if overrides.WorkingDirectory != "" {
		out.WorkingDirectory = overrides.WorkingDirectory
	}
	if overrides.Sandbox != "" {
		out.Sandbox = overrides.Sandbox
		out.UseFullAuto = false
	} else if overrides.FullAuto {
		out.Sandbox = ""
		out.UseFullAuto = true
	}
	return out
}

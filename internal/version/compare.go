package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

const devVersion = "main"

// CheckVersionCompatibility checks the engine_version of a strategy config
// against the running engine.
//
// required is either a version or a semver constraint:
//   - "main" on either side skips the check
//   - a version is compatible when major and minor match, e.g. engine 1.2.5
//     runs configs written for 1.2.0 but not for 1.3.0
//   - a constraint such as "^1.2" or ">= 1.1, < 1.4" must accept the engine version
func CheckVersionCompatibility(engineVersion, required string) error {
	engineVersion = strings.TrimPrefix(strings.TrimSpace(engineVersion), "v")
	required = strings.TrimSpace(required)

	if engineVersion == devVersion || required == devVersion {
		return nil
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version '%s'", engineVersion)
	}

	if exact, err := semver.NewVersion(strings.TrimPrefix(required, "v")); err == nil {
		return checkExact(engine, exact)
	}

	constraint, err := semver.NewConstraint(required)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid required version '%s'", required)
	}

	// prereleases of the engine are matched against the constraint as releases
	release, _ := engine.SetPrerelease("")

	if ok, reasons := constraint.Validate(&release); !ok {
		messages := make([]string, 0, len(reasons))
		for _, reason := range reasons {
			messages = append(messages, reason.Error())
		}

		return errors.Newf(errors.ErrCodeVersionMismatch, "engine %s does not satisfy %s", engine, required).
			WithDetail("reasons", messages)
	}

	return nil
}

func checkExact(engine, required *semver.Version) error {
	if engine.Major() != required.Major() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "major version mismatch: engine is %d.x.x but strategy requires %d.x.x",
			engine.Major(), required.Major())
	}

	if engine.Minor() != required.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "minor version mismatch: engine is %d.%d.x but strategy requires %d.%d.x",
			engine.Major(), engine.Minor(), required.Major(), required.Minor())
	}

	return nil
}

package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

type testConfig struct {
	Name    string   `json:"name" jsonschema:"description=The name of the config"`
	Value   int      `json:"value" jsonschema:"description=A numeric value"`
	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags,omitempty"`
}

type nestedConfig struct {
	ID     string     `json:"id"`
	Config testConfig `json:"config"`
}

func (suite *UtilsTestSuite) decode(schema string) map[string]any {
	var result map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(schema), &result))

	return result
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigSimple() {
	schema, err := GetSchemaFromConfig(testConfig{})
	suite.Require().NoError(err)

	result := suite.decode(schema)
	suite.Contains(result, "$schema")
	suite.NotContains(result, "$ref")
	suite.NotContains(result, "$defs")

	properties, ok := result["properties"].(map[string]any)
	suite.Require().True(ok)
	suite.Contains(properties, "name")
	suite.Contains(properties, "tags")
	suite.ElementsMatch([]any{"name", "value", "enabled"}, result["required"])
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigNested() {
	schema, err := GetSchemaFromConfig(nestedConfig{})
	suite.Require().NoError(err)

	properties := suite.decode(schema)["properties"].(map[string]any)
	nested, ok := properties["config"].(map[string]any)
	suite.Require().True(ok)
	suite.Contains(nested, "properties", "nested types are inlined")
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigPointer() {
	fromValue, err := GetSchemaFromConfig(testConfig{})
	suite.Require().NoError(err)

	fromPointer, err := GetSchemaFromConfig(&testConfig{})
	suite.Require().NoError(err)
	suite.JSONEq(fromValue, fromPointer)
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigEmptyStruct() {
	type emptyConfig struct{}

	schema, err := GetSchemaFromConfig(emptyConfig{})
	suite.Require().NoError(err)
	suite.Equal("object", suite.decode(schema)["type"])
}

package service

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type DescribeClientSuite struct {
	suite.Suite
}

func TestDescribeClientSuite(t *testing.T) {
	suite.Run(t, new(DescribeClientSuite))
}

func (s *DescribeClientSuite) TestUserAgentParsing() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", DescribeClient(""))
	})

	s.Run("chrome on desktop includes browser and OS", func() {
		result := DescribeClient("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		s.Contains(result, "Chrome")
		s.Contains(result, " on ")
		s.NotContains(result, "  ")
	})

	s.Run("safari on iphone includes platform", func() {
		result := DescribeClient("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		s.Contains(result, " on ")
		s.Contains(result, "iPhone")
	})

	s.Run("unknown user agent still formats", func() {
		result := DescribeClient("Unknown/1.0")
		s.NotEmpty(result)
	})
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	TemplateBeforeDue = "Olá {{primeiro_nome}}, lembrando que sua fatura de {{valor}} vence em {{vencimento}}. Pague pelo link: {{link_pagamento}}"
	TemplateOnDue     = "Olá {{primeiro_nome}}, sua fatura de {{valor}} vence hoje. Pague pelo link: {{link_pagamento}}"
	TemplateAfterDue  = "Olá {{primeiro_nome}}, sua fatura de {{valor}} venceu em {{vencimento}}. Regularize pelo link: {{link_pagamento}}"
)

// DefaultTemplate is the reminder text used for an offset without a tenant template.
func DefaultTemplate(offset int) string {
	switch {
	case offset < 0:
		return TemplateBeforeDue
	case offset == 0:
		return TemplateOnDue
	default:
		return TemplateAfterDue
	}
}

// ParseOffsets reads a plan like "-3,-1,0,1,3,7" into steps with the default templates.
func ParseOffsets(s string) ([]PlanStep, error) {
	var steps []PlanStep
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid plan offset %q", part)
		}
		steps = append(steps, PlanStep{OffsetDays: n, Template: DefaultTemplate(n)})
	}
	return steps, nil
}

// Package kubernetes provides a remote.Acquirer that obtains sandbox pods
// through agent-sandbox SandboxClaim CRDs. Each acquisition claims a fresh
// sandbox from a template, so concurrent tasks never share an interpreter.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/sandbox/remote"
)

// Ensure ClaimAcquirer implements remote.Acquirer.
var _ remote.Acquirer = (*ClaimAcquirer)(nil)

const (
	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "codinit"

	defaultPort  = 8080
	pollInterval = 500 * time.Millisecond
)

// ClaimAcquirer creates a SandboxClaim per acquisition, waits for the bound
// Sandbox to report Ready, and deletes the claim on release.
type ClaimAcquirer struct {
	client    client.Client
	template  string
	namespace string
	timeout   time.Duration
	port      int
}

// Option configures optional ClaimAcquirer settings.
type Option func(*ClaimAcquirer)

// WithPort sets the sandbox server port inside the pod.
func WithPort(port int) Option {
	return func(a *ClaimAcquirer) { a.port = port }
}

// NewClaimAcquirer returns an acquirer for the given SandboxTemplate.
func NewClaimAcquirer(c client.Client, template, namespace string, timeout time.Duration, opts ...Option) *ClaimAcquirer {
	a := &ClaimAcquirer{
		client:    c,
		template:  template,
		namespace: namespace,
		timeout:   timeout,
		port:      defaultPort,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire claims a sandbox and returns its URL (http://<serviceFQDN>:<port>).
// On failure the claim is deleted before returning.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	name := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.namespace,
			Labels:    map[string]string{managedByLabel: managedByValue},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: a.template},
		},
	}
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	slog.Debug("created SandboxClaim", "name", name, "namespace", a.namespace, "template", a.template)

	fqdn, err := a.waitForReady(ctx, name)
	if err != nil {
		a.deleteClaim(context.Background(), name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.port)
	release := func() { a.deleteClaim(context.Background(), name) }

	slog.Debug("sandbox acquired", "name", name, "url", url)
	return url, release, nil
}

// waitForReady polls the Sandbox named after the claim until it is Ready
// and has a service FQDN.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.After(a.timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled waiting for Sandbox %q: %w", name, ctx.Err())
		case <-deadline:
			return "", fmt.Errorf("timeout waiting for Sandbox %q to become ready (waited %s)", name, a.timeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			if err := a.client.Get(ctx, types.NamespacedName{Name: name, Namespace: a.namespace}, sb); err != nil {
				// The controller has not created the Sandbox yet.
				continue
			}
			if isReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim deletes a SandboxClaim. Errors are logged, release paths
// have nobody to return them to.
func (a *ClaimAcquirer) deleteClaim(ctx context.Context, name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.namespace, "error", err.Error())
		return
	}
	slog.Debug("deleted SandboxClaim", "name", name, "namespace", a.namespace)
}

// generateClaimNameFn creates a unique, DNS-safe claim name.
// Replaceable in tests for deterministic naming.
var generateClaimNameFn = func() string {
	return "codinit-" + toLowerDNS(api.NewEnvironmentName())
}

func toLowerDNS(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
